// Package catalog は管理者向けのブランド・モデルカタログのドメインロジックを提供する。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/autotrackr/internal/backend"
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/repository"
	"github.com/hitoshi/autotrackr/internal/security"
)

// Service はカタログ管理のサービス層。
// 車両登録フォームは参照データAPIを使用するため、このカタログとは同期しない。
type Service struct {
	brandRepo   repository.BrandRepository
	modelRepo   repository.ModelRepository
	vehicleRepo repository.VehicleRepository
	profileRepo repository.ProfileRepository
	sanitizer   security.TextSanitizer
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	brandRepo repository.BrandRepository,
	modelRepo repository.ModelRepository,
	vehicleRepo repository.VehicleRepository,
	profileRepo repository.ProfileRepository,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
) *Service {
	return &Service{
		brandRepo:   brandRepo,
		modelRepo:   modelRepo,
		vehicleRepo: vehicleRepo,
		profileRepo: profileRepo,
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// ListBrands は名前順に全ブランドを返す。
func (s *Service) ListBrands(ctx context.Context) ([]*model.Brand, error) {
	brands, err := s.brandRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ブランド一覧の取得に失敗しました: %w", err)
	}
	return brands, nil
}

// CreateBrand はブランドを作成する。
func (s *Service) CreateBrand(ctx context.Context, name string) (*model.Brand, error) {
	name = s.sanitizer.Clean(name)
	if name == "" {
		return nil, model.NewInvalidNameError("nome da marca")
	}

	brand := &model.Brand{Name: name}
	if err := s.brandRepo.Create(ctx, brand); err != nil {
		if backend.IsKind(err, backend.KindDuplicate) {
			return nil, model.NewBrandAlreadyExistsError(name)
		}
		return nil, fmt.Errorf("ブランドの作成に失敗しました: %w", err)
	}

	s.logger.Info("ブランドを作成しました", slog.String("brand_id", brand.ID), slog.String("name", name))
	return brand, nil
}

// RenameBrand はブランド名を変更する。
func (s *Service) RenameBrand(ctx context.Context, id, name string) error {
	name = s.sanitizer.Clean(name)
	if name == "" {
		return model.NewInvalidNameError("nome da marca")
	}

	if err := s.brandRepo.Rename(ctx, id, name); err != nil {
		switch backend.KindOf(err) {
		case backend.KindDuplicate:
			return model.NewBrandAlreadyExistsError(name)
		case backend.KindNotFound:
			return model.NewBrandNotFoundError(id)
		}
		return fmt.Errorf("ブランド名の変更に失敗しました: %w", err)
	}
	return nil
}

// DeleteBrand はブランドを削除する。モデルが紐づいている場合は削除できない。
func (s *Service) DeleteBrand(ctx context.Context, id string) error {
	if err := s.brandRepo.Delete(ctx, id); err != nil {
		switch backend.KindOf(err) {
		case backend.KindForeignKey:
			return model.NewBrandInUseError()
		case backend.KindNotFound:
			return model.NewBrandNotFoundError(id)
		}
		return fmt.Errorf("ブランドの削除に失敗しました: %w", err)
	}

	s.logger.Info("ブランドを削除しました", slog.String("brand_id", id))
	return nil
}

// ListModels はブランド名付きで全モデルを返す。
func (s *Service) ListModels(ctx context.Context) ([]*model.CarModel, error) {
	models, err := s.modelRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("モデル一覧の取得に失敗しました: %w", err)
	}
	return models, nil
}

// CreateModel はブランドにモデルを追加する。
func (s *Service) CreateModel(ctx context.Context, brandID, name string) (*model.CarModel, error) {
	name = s.sanitizer.Clean(name)
	if brandID == "" {
		return nil, model.NewInvalidNameError("marca")
	}
	if name == "" {
		return nil, model.NewInvalidNameError("nome do modelo")
	}

	m := &model.CarModel{BrandID: brandID, Name: name}
	if err := s.modelRepo.Create(ctx, m); err != nil {
		switch backend.KindOf(err) {
		case backend.KindDuplicate:
			return nil, model.NewModelAlreadyExistsError(name)
		case backend.KindForeignKey, backend.KindValidation:
			return nil, model.NewBrandNotFoundError(brandID)
		}
		return nil, fmt.Errorf("モデルの作成に失敗しました: %w", err)
	}

	s.logger.Info("モデルを作成しました", slog.String("model_id", m.ID), slog.String("name", name))
	return m, nil
}

// UpdateModel はモデルのブランドと名前を変更する。
func (s *Service) UpdateModel(ctx context.Context, id, brandID, name string) error {
	name = s.sanitizer.Clean(name)
	if brandID == "" {
		return model.NewInvalidNameError("marca")
	}
	if name == "" {
		return model.NewInvalidNameError("nome do modelo")
	}

	if err := s.modelRepo.Update(ctx, id, brandID, name); err != nil {
		switch backend.KindOf(err) {
		case backend.KindDuplicate:
			return model.NewModelAlreadyExistsError(name)
		case backend.KindForeignKey:
			return model.NewBrandNotFoundError(brandID)
		case backend.KindNotFound:
			return model.NewModelNotFoundError(id)
		}
		return fmt.Errorf("モデルの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteModel はモデルを削除する。
func (s *Service) DeleteModel(ctx context.Context, id string) error {
	if err := s.modelRepo.Delete(ctx, id); err != nil {
		if backend.IsKind(err, backend.KindNotFound) {
			return model.NewModelNotFoundError(id)
		}
		return fmt.Errorf("モデルの削除に失敗しました: %w", err)
	}
	return nil
}

// ImportStandardBrands は未登録の標準ブランドを追加する。
// 個別の失敗は結果に記録し、残りのブランドの取り込みを続ける。
func (s *Service) ImportStandardBrands(ctx context.Context) (*model.ImportResult, error) {
	existing, err := s.brandRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("既存ブランドの取得に失敗しました: %w", err)
	}
	names := make(map[string]struct{}, len(existing))
	for _, b := range existing {
		names[b.Name] = struct{}{}
	}

	result := &model.ImportResult{}
	for _, name := range standardBrands {
		if _, ok := names[name]; ok {
			continue
		}
		if err := s.brandRepo.Create(ctx, &model.Brand{Name: name}); err != nil {
			if backend.IsKind(err, backend.KindDuplicate) {
				continue
			}
			s.logger.Warn("標準ブランドの取り込みに失敗しました",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			result.Failed = append(result.Failed, name)
			continue
		}
		result.Inserted++
	}

	s.logger.Info("標準ブランドを取り込みました",
		slog.Int("inserted", result.Inserted),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// ImportStandardModels は登録済みブランドに未登録の標準モデルを追加する。
// 標準モデルが定義されていないブランドは対象外。
func (s *Service) ImportStandardModels(ctx context.Context) (*model.ImportResult, error) {
	brands, err := s.brandRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ブランド一覧の取得に失敗しました: %w", err)
	}

	result := &model.ImportResult{}
	for _, brand := range brands {
		standard, ok := standardModels[brand.Name]
		if !ok {
			continue
		}
		inserted, err := s.importModels(ctx, brand, standard)
		result.Inserted += inserted
		if err != nil {
			s.logger.Warn("標準モデルの取り込みに失敗しました",
				slog.String("brand", brand.Name),
				slog.String("error", err.Error()),
			)
			result.Failed = append(result.Failed, brand.Name)
		}
	}

	s.logger.Info("標準モデルを取り込みました",
		slog.Int("inserted", result.Inserted),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *Service) importModels(ctx context.Context, brand *model.Brand, standard []string) (int, error) {
	existing, err := s.modelRepo.ListByBrand(ctx, brand.ID)
	if err != nil {
		return 0, err
	}
	names := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		names[m.Name] = struct{}{}
	}

	inserted := 0
	var errs []error
	for _, name := range standard {
		if _, ok := names[name]; ok {
			continue
		}
		err := s.modelRepo.Create(ctx, &model.CarModel{BrandID: brand.ID, Name: name})
		switch {
		case err == nil:
			inserted++
		case backend.IsKind(err, backend.KindDuplicate):
		default:
			errs = append(errs, err)
		}
	}
	return inserted, errors.Join(errs...)
}

// Stats は管理ダッシュボード用の件数を返す。
func (s *Service) Stats(ctx context.Context) (*model.CatalogStats, error) {
	var stats model.CatalogStats
	var err error

	if stats.Brands, err = s.brandRepo.Count(ctx); err != nil {
		return nil, fmt.Errorf("ブランド数の取得に失敗しました: %w", err)
	}
	if stats.Models, err = s.modelRepo.Count(ctx); err != nil {
		return nil, fmt.Errorf("モデル数の取得に失敗しました: %w", err)
	}
	if stats.Vehicles, err = s.vehicleRepo.Count(ctx); err != nil {
		return nil, fmt.Errorf("車両数の取得に失敗しました: %w", err)
	}
	if stats.Profiles, err = s.profileRepo.Count(ctx); err != nil {
		return nil, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	return &stats, nil
}
