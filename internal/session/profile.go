package session

import (
	"context"
	"log/slog"

	"github.com/hitoshi/autotrackr/internal/localstore"
	"github.com/hitoshi/autotrackr/internal/metrics"
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/repository"
)

// StorageKeyProfile はプロフィールのキャッシュを保持するローカルストレージのキー。
const StorageKeyProfile = "cached_user_profile"

// profileLoader はプロフィールの取得、遅延作成、キャッシュを行う。
// 取得に失敗してもエラーは返さず、キャッシュまたは既定のプロフィールに切り替える。
type profileLoader struct {
	repo    repository.ProfileRepository
	storage localstore.Storage
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// cached はユーザーIDが一致するキャッシュ済みプロフィールを返す。
func (l *profileLoader) cached(userID string) *model.UserProfile {
	var p model.UserProfile
	if !localstore.GetJSON(l.storage, StorageKeyProfile, &p) || p.ID != userID {
		return nil
	}
	return &p
}

// save はプロフィールをキャッシュに書き込む。失敗しても呼び出し元には影響しない。
func (l *profileLoader) save(p *model.UserProfile) {
	if err := localstore.SetJSON(l.storage, StorageKeyProfile, p); err != nil {
		l.logger.Warn("プロフィールのキャッシュ保存に失敗しました",
			slog.String("user_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// fetch はユーザーのプロフィールを解決する。
// キャッシュが存在する場合はネットワーク応答を待たずにprovisionalへ渡す。
func (l *profileLoader) fetch(ctx context.Context, user model.AuthUser, provisional func(*model.UserProfile)) *model.UserProfile {
	cached := l.cached(user.ID)
	if cached != nil && provisional != nil {
		provisional(cached)
	}

	row, err := l.repo.FindByUserID(ctx, user.ID)
	switch {
	case err == nil && row != nil:
		p := normalizeProfile(row, user)
		l.save(p)
		return p

	case err == nil:
		// 行が存在しない場合のみ既定のプロフィールを作成する
		p := model.DefaultProfile(user)
		insertErr := l.repo.InsertDefault(ctx, &model.ProfileRow{
			UserID: user.ID,
			Email:  user.Email,
			Role:   string(model.RoleUser),
		})
		if insertErr != nil {
			l.logger.Warn("既定プロフィールの作成に失敗しました",
				slog.String("user_id", user.ID),
				slog.String("error", insertErr.Error()),
			)
		} else {
			l.logger.Info("既定プロフィールを作成しました", slog.String("user_id", user.ID))
		}
		l.save(p)
		return p

	default:
		l.logger.Warn("プロフィールの取得に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		if cached != nil {
			l.metrics.RecordProfileFallback("cached")
			return cached
		}
		l.metrics.RecordProfileFallback("default")
		p := model.DefaultProfile(user)
		l.save(p)
		return p
	}
}

// normalizeProfile はuser_profilesの行をUserProfileに変換する。
// emailが空の場合は認証ユーザーのemail、未知のroleはuserとして扱う。
func normalizeProfile(row *model.ProfileRow, user model.AuthUser) *model.UserProfile {
	email := row.Email
	if email == "" {
		email = user.Email
	}
	return &model.UserProfile{
		ID:    user.ID,
		Email: email,
		Role:  model.ParseRole(row.Role),
		Name:  row.Name,
		Phone: row.Phone,
	}
}
