package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/hitoshi/autotrackr/internal/model"
)

func TestAdmin_Guard(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{"", "/login"},
		{"user", "/dashboard"},
	}

	for _, tt := range tests {
		t.Run("role="+tt.role, func(t *testing.T) {
			env := newTestEnv(t, tt.role)
			env.catalog.createBrandFn = func(ctx context.Context, name string) (*model.Brand, error) {
				t.Error("CreateBrand should not be called")
				return nil, nil
			}

			assertRedirect(t, env.do(http.MethodGet, "/admin", nil), tt.want)
			assertRedirect(t, env.do(http.MethodGet, "/admin/brands", nil), tt.want)
			assertRedirect(t, env.do(http.MethodPost, "/admin/brands", url.Values{"name": {"Fiat"}}), tt.want)
		})
	}
}

func TestAdminIndex_ShowsStats(t *testing.T) {
	env := newTestEnv(t, "admin")
	env.catalog.statsFn = func(ctx context.Context) (*model.CatalogStats, error) {
		return &model.CatalogStats{Brands: 12, Models: 345, Vehicles: 6, Profiles: 78}, nil
	}

	w := env.do(http.MethodGet, "/admin", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	assertBodyContains(t, w, "<strong>12</strong>", "<strong>345</strong>", "<strong>78</strong>")
}

func TestAdminIndex_StatsError(t *testing.T) {
	env := newTestEnv(t, "admin")
	env.catalog.statsFn = func(ctx context.Context) (*model.CatalogStats, error) {
		return nil, errors.New("timeout")
	}

	w := env.do(http.MethodGet, "/admin", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	assertBodyContains(t, w, "Não foi possível carregar as estatísticas.")
}

func TestAdminBrands_List(t *testing.T) {
	env := newTestEnv(t, "admin")
	env.catalog.listBrandsFn = func(ctx context.Context) ([]*model.Brand, error) {
		return []*model.Brand{{ID: "b1", Name: "Chevrolet"}, {ID: "b2", Name: "<Fiat>"}}, nil
	}

	w := env.do(http.MethodGet, "/admin/brands", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	assertBodyContains(t, w, "Chevrolet", "&lt;Fiat&gt;", `action="/admin/brands/b1/rename"`, `action="/admin/brands/b2/delete"`)
}

func TestAdminBrands_Mutations(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		form      url.Values
		setup     func(m *mockCatalogService, t *testing.T)
		wantKind  string
		wantFlash string
	}{
		{
			name: "作成",
			path: "/admin/brands",
			form: url.Values{"name": {"Fiat"}},
			setup: func(m *mockCatalogService, t *testing.T) {
				m.createBrandFn = func(ctx context.Context, name string) (*model.Brand, error) {
					if name != "Fiat" {
						t.Errorf("name = %q", name)
					}
					return &model.Brand{ID: "b1", Name: name}, nil
				}
			},
			wantKind:  flashSuccess,
			wantFlash: "Marca criada com sucesso.",
		},
		{
			name: "重複",
			path: "/admin/brands",
			form: url.Values{"name": {"Fiat"}},
			setup: func(m *mockCatalogService, t *testing.T) {
				m.createBrandFn = func(ctx context.Context, name string) (*model.Brand, error) {
					return nil, model.NewBrandAlreadyExistsError(name)
				}
			},
			wantKind:  flashError,
			wantFlash: "Esta marca já existe no sistema: Fiat",
		},
		{
			name: "名称変更",
			path: "/admin/brands/b1/rename",
			form: url.Values{"name": {"GM"}},
			setup: func(m *mockCatalogService, t *testing.T) {
				m.renameBrandFn = func(ctx context.Context, id, name string) error {
					if id != "b1" || name != "GM" {
						t.Errorf("RenameBrand(%q, %q)", id, name)
					}
					return nil
				}
			},
			wantKind:  flashSuccess,
			wantFlash: "Marca atualizada com sucesso.",
		},
		{
			name: "使用中の削除",
			path: "/admin/brands/b1/delete",
			setup: func(m *mockCatalogService, t *testing.T) {
				m.deleteBrandFn = func(ctx context.Context, id string) error {
					return model.NewBrandInUseError()
				}
			},
			wantKind:  flashError,
			wantFlash: "existem modelos vinculados",
		},
		{
			name: "内部エラー",
			path: "/admin/brands/b1/delete",
			setup: func(m *mockCatalogService, t *testing.T) {
				m.deleteBrandFn = func(ctx context.Context, id string) error {
					return errors.New("pq: connection reset")
				}
			},
			wantKind:  flashError,
			wantFlash: "Ocorreu um erro interno. Tente novamente.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "admin")
			tt.setup(env.catalog, t)

			w := env.do(http.MethodPost, tt.path, tt.form)

			assertRedirect(t, w, "/admin/brands")
			env.assertFlash(w, tt.wantKind, tt.wantFlash)
		})
	}
}

func TestAdminBrands_Import(t *testing.T) {
	t.Run("成功", func(t *testing.T) {
		env := newTestEnv(t, "admin")
		env.catalog.importBrandsFn = func(ctx context.Context) (*model.ImportResult, error) {
			return &model.ImportResult{Inserted: 30}, nil
		}

		w := env.do(http.MethodPost, "/admin/brands/import", nil)

		assertRedirect(t, w, "/admin/brands")
		env.assertFlash(w, flashSuccess, "30 marca(s) importado(s).")
	})

	t.Run("一部失敗", func(t *testing.T) {
		env := newTestEnv(t, "admin")
		env.catalog.importBrandsFn = func(ctx context.Context) (*model.ImportResult, error) {
			return &model.ImportResult{Inserted: 28, Failed: []string{"Jeep", "RAM"}}, nil
		}

		w := env.do(http.MethodPost, "/admin/brands/import", nil)

		env.assertFlash(w, flashError, "Falha ao importar: Jeep, RAM")
	})
}

func TestAdminModels_ListAndUpdate(t *testing.T) {
	env := newTestEnv(t, "admin")
	env.catalog.listBrandsFn = func(ctx context.Context) ([]*model.Brand, error) {
		return []*model.Brand{{ID: "b1", Name: "Chevrolet"}, {ID: "b2", Name: "Fiat"}}, nil
	}
	env.catalog.listModelsFn = func(ctx context.Context) ([]*model.CarModel, error) {
		return []*model.CarModel{{ID: "m1", BrandID: "b2", BrandName: "Fiat", Name: "Uno"}}, nil
	}
	var gotID, gotBrand, gotName string
	env.catalog.updateModelFn = func(ctx context.Context, id, brandID, name string) error {
		gotID, gotBrand, gotName = id, brandID, name
		return nil
	}

	w := env.do(http.MethodGet, "/admin/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	assertBodyContains(t, w, `<option value="b2" selected>Fiat</option>`, `value="Uno"`)

	w = env.do(http.MethodPost, "/admin/models/m1/update", url.Values{"brand_id": {"b1"}, "name": {"Onix"}})

	assertRedirect(t, w, "/admin/models")
	env.assertFlash(w, flashSuccess, "Modelo atualizado com sucesso.")
	if gotID != "m1" || gotBrand != "b1" || gotName != "Onix" {
		t.Errorf("UpdateModel(%q, %q, %q)", gotID, gotBrand, gotName)
	}
}

func TestAdminModels_CreateDeleteImport(t *testing.T) {
	env := newTestEnv(t, "admin")
	env.catalog.createModelFn = func(ctx context.Context, brandID, name string) (*model.CarModel, error) {
		return nil, model.NewModelAlreadyExistsError(name)
	}
	var deleted string
	env.catalog.deleteModelFn = func(ctx context.Context, id string) error {
		deleted = id
		return nil
	}
	env.catalog.importModelsFn = func(ctx context.Context) (*model.ImportResult, error) {
		return &model.ImportResult{Inserted: 120}, nil
	}

	w := env.do(http.MethodPost, "/admin/models", url.Values{"brand_id": {"b1"}, "name": {"Onix"}})
	assertRedirect(t, w, "/admin/models")
	env.assertFlash(w, flashError, "Este modelo já existe para esta marca: Onix")

	w = env.do(http.MethodPost, "/admin/models/m9/delete", nil)
	assertRedirect(t, w, "/admin/models")
	if deleted != "m9" {
		t.Errorf("deleted = %q, want m9", deleted)
	}

	w = env.do(http.MethodPost, "/admin/models/import", nil)
	env.assertFlash(w, flashSuccess, "120 modelo(s) importado(s).")
}
