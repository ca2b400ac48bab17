// Package vehicle は車両登録とダッシュボードのドメインロジックを提供する。
package vehicle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/refdata"
	"github.com/hitoshi/autotrackr/internal/repository"
	"github.com/hitoshi/autotrackr/internal/security"
)

// ReferenceLookup は参照データAPIから表示名を解決する。*refdata.Clientが実装する。
type ReferenceLookup interface {
	FindBrand(ctx context.Context, brandID string) (*refdata.Option, error)
	FindModel(ctx context.Context, brandID, modelID string) (*refdata.Option, error)
}

// AddVehicleInput は車両登録フォームの入力値。
// BrandID、ModelID、YearIDは参照データAPIの識別子。
type AddVehicleInput struct {
	BrandID string
	ModelID string
	YearID  string
	Plate   string
	Mileage string
	Color   string
	VIN     string
}

// Dashboard はダッシュボードに表示する車両とメンテナンス予定。
type Dashboard struct {
	Vehicles    []*model.Vehicle
	Maintenance []model.MaintenanceItem
}

// maintenanceService は走行距離ベースの定期メンテナンス。
type maintenanceService struct {
	name       string
	intervalKm int
}

var maintenancePlan = []maintenanceService{
	{name: "Troca de Óleo", intervalKm: 10000},
	{name: "Rodízio de Pneus", intervalKm: 10000},
	{name: "Revisão Geral", intervalKm: 20000},
}

var leadingInt = regexp.MustCompile(`^\s*(\d+)`)

// Service は車両管理のサービス層。
type Service struct {
	vehicleRepo repository.VehicleRepository
	reference   ReferenceLookup
	sanitizer   security.TextSanitizer
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(vehicleRepo repository.VehicleRepository, reference ReferenceLookup, sanitizer security.TextSanitizer, logger *slog.Logger) *Service {
	return &Service{
		vehicleRepo: vehicleRepo,
		reference:   reference,
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// AddVehicle は所有者の車両を1件登録する。
// ブランド名とモデル名は参照データAPIで解決し、解決できない場合は識別子をそのまま使う。
func (s *Service) AddVehicle(ctx context.Context, ownerID string, in AddVehicleInput) (*model.Vehicle, error) {
	if ownerID == "" {
		return nil, model.NewUnauthorizedError()
	}

	v, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	v.OwnerID = ownerID
	v.Brand = s.brandLabel(ctx, in.BrandID)
	v.Model = s.modelLabel(ctx, in.BrandID, in.ModelID)

	if err := s.vehicleRepo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("車両の登録に失敗しました: %w", err)
	}

	s.logger.Info("車両を登録しました",
		slog.String("vehicle_id", v.ID),
		slog.String("owner_id", ownerID),
		slog.String("brand", v.Brand),
		slog.String("model", v.Model),
	)
	return v, nil
}

// vehiclesテーブルの列長。
const (
	maxPlateLen = 16
	maxColorLen = 64
	maxVINLen   = 32
)

// validate は入力値を検証し、表示名以外を設定したVehicleを返す。
func (s *Service) validate(in AddVehicleInput) (*model.Vehicle, error) {
	if strings.TrimSpace(in.BrandID) == "" {
		return nil, model.NewInvalidVehicleError("marca", "selecione uma marca")
	}
	if strings.TrimSpace(in.ModelID) == "" {
		return nil, model.NewInvalidVehicleError("modelo", "selecione um modelo")
	}

	year, ok := parseLeadingInt(in.YearID)
	if !ok || year <= 0 || year > math.MaxInt32 {
		return nil, model.NewInvalidVehicleError("ano", "selecione um ano válido")
	}

	plate := strings.ToUpper(s.sanitizer.Clean(in.Plate))
	if plate == "" {
		return nil, model.NewInvalidVehicleError("placa", "informe a placa")
	}
	if utf8.RuneCountInString(plate) > maxPlateLen {
		return nil, model.NewInvalidVehicleError("placa", fmt.Sprintf("use no máximo %d caracteres", maxPlateLen))
	}

	mileage, ok := parseLeadingInt(in.Mileage)
	if !ok {
		return nil, model.NewInvalidVehicleError("quilometragem", "informe um número inteiro maior ou igual a zero")
	}
	if mileage > math.MaxInt32 {
		return nil, model.NewInvalidVehicleError("quilometragem", fmt.Sprintf("informe no máximo %d", math.MaxInt32))
	}

	color := s.sanitizer.Clean(in.Color)
	if utf8.RuneCountInString(color) > maxColorLen {
		return nil, model.NewInvalidVehicleError("cor", fmt.Sprintf("use no máximo %d caracteres", maxColorLen))
	}
	vin := strings.ToUpper(s.sanitizer.Clean(in.VIN))
	if utf8.RuneCountInString(vin) > maxVINLen {
		return nil, model.NewInvalidVehicleError("chassi", fmt.Sprintf("use no máximo %d caracteres", maxVINLen))
	}

	return &model.Vehicle{
		Plate:   plate,
		Year:    year,
		Mileage: mileage,
		Color:   color,
		VIN:     vin,
	}, nil
}

// parseLeadingInt は先頭の整数部分を返す。"2015-1"は2015になる。
func parseLeadingInt(raw string) (int, bool) {
	m := leadingInt.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Service) brandLabel(ctx context.Context, brandID string) string {
	opt, err := s.reference.FindBrand(ctx, brandID)
	if err != nil {
		s.logger.Warn("ブランド名の解決に失敗しました",
			slog.String("brand_id", brandID),
			slog.String("error", err.Error()),
		)
	}
	if opt == nil || opt.Label == "" {
		return brandID
	}
	return opt.Label
}

func (s *Service) modelLabel(ctx context.Context, brandID, modelID string) string {
	opt, err := s.reference.FindModel(ctx, brandID, modelID)
	if err != nil {
		s.logger.Warn("モデル名の解決に失敗しました",
			slog.String("brand_id", brandID),
			slog.String("model_id", modelID),
			slog.String("error", err.Error()),
		)
	}
	if opt == nil || opt.Label == "" {
		return modelID
	}
	return opt.Label
}

// Dashboard は所有者の車両と、走行距離から算出したメンテナンス予定を返す。
func (s *Service) Dashboard(ctx context.Context, ownerID string) (*Dashboard, error) {
	vehicles, err := s.vehicleRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("車両一覧の取得に失敗しました: %w", err)
	}
	return &Dashboard{
		Vehicles:    vehicles,
		Maintenance: MaintenancePlan(vehicles),
	}, nil
}

// MaintenancePlan は車両ごと・サービスごとの次回予定を残り距離の短い順に返す。
func MaintenancePlan(vehicles []*model.Vehicle) []model.MaintenanceItem {
	items := make([]model.MaintenanceItem, 0, len(vehicles)*len(maintenancePlan))
	for _, v := range vehicles {
		for _, svc := range maintenancePlan {
			done := v.Mileage % svc.intervalKm
			due := v.Mileage - done + svc.intervalKm
			items = append(items, model.MaintenanceItem{
				VehicleID:    v.ID,
				VehicleLabel: v.Label(),
				Service:      svc.name,
				DueAtMileage: due,
				RemainingKm:  due - v.Mileage,
				Progress:     done * 100 / svc.intervalKm,
			})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RemainingKm < items[j].RemainingKm
	})
	return items
}
