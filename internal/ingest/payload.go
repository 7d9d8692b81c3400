package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DraftPayload は記事取り込みリクエストのボディ。
// approval_status や is_published などワークフロー系のフィールドは定義せず、送られても無視する。
type DraftPayload struct {
	Title           string          `json:"title"`
	Summary         string          `json:"summary"`
	OriginalURL     string          `json:"original_url"`
	Source          string          `json:"source"`
	Category        string          `json:"category"`
	ImageURL        string          `json:"image_url"`
	Tags            TagList         `json:"tags"`
	ValidationScore json.RawMessage `json:"validation_score"`
}

// maxTags は1記事あたりに保存するタグの上限。
const maxTags = 20

// TagList はJSON配列とカンマ区切り文字列のどちらでも受け付けるタグ一覧。
type TagList []string

// UnmarshalJSON はTagListをデコードする。
func (t *TagList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}

	var raw []string
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("tags must be an array of strings: %w", err)
		}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.Split(s, ",")
	default:
		return fmt.Errorf("tags must be an array or a comma separated string")
	}

	*t = normalizeTags(raw)
	return nil
}

// normalizeTags は前後の空白を除去し、空要素と大文字小文字違いの重複を取り除く。
func normalizeTags(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// parseScore は validation_score を数値へ変換する。
// 未指定またはnullの場合は (nil, true)、数値として解釈できない場合は (nil, false) を返す。
func parseScore(raw json.RawMessage) (*float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, true
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, true
		}
		v, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return &v, true
}
