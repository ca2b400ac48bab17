package refdata

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Option は選択肢1件（ブランド、モデル、年式）を表す。
// 識別子は codigo|code|id、表示名は nome|name|label のいずれのキーでも受け付け、
// 識別子が数値の場合は文字列に変換する。
type Option struct {
	ID    string `json:"code"`
	Label string `json:"name"`
}

var (
	idKeys    = []string{"codigo", "code", "id"}
	labelKeys = []string{"nome", "name", "label"}
)

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (o *Option) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	lowered := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		lowered[strings.ToLower(k)] = v
	}

	o.ID = scalarField(lowered, idKeys)
	o.Label = scalarField(lowered, labelKeys)
	return nil
}

// scalarField は候補キーのうち最初に見つかった文字列または数値を返す。
func scalarField(m map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		var s string
		if json.Unmarshal(v, &s) == nil {
			return s
		}
		var n json.Number
		if json.Unmarshal(v, &n) == nil {
			return n.String()
		}
	}
	return ""
}

// modelsResponse はモデル一覧のレスポンス。キーは modelos または models。
type modelsResponse struct {
	Modelos []Option `json:"modelos"`
	Models  []Option `json:"models"`
}

func (r *modelsResponse) options() []Option {
	if len(r.Modelos) > 0 {
		return r.Modelos
	}
	return r.Models
}

// VehicleInfo は年式指定時の車両詳細。フィールド名はAPIの表記に合わせる。
type VehicleInfo struct {
	Price          string `json:"valor"`
	Brand          string `json:"marca"`
	Model          string `json:"modelo"`
	ModelYear      int    `json:"anoModelo"`
	Fuel           string `json:"combustivel"`
	FipeCode       string `json:"codigoFipe"`
	ReferenceMonth string `json:"mesReferencia"`
	VehicleType    int    `json:"tipoVeiculo"`
	FuelAcronym    string `json:"siglaCombustivel"`
}
