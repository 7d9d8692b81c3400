// Package clock はUTC（保存用）と利用者向けの固定ローカルオフセット（+05:30）の相互変換を提供する。
// I/Oを持たない純粋関数のみで構成する。
package clock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// IST は予約入力・表示に使用する固定オフセット（UTC+05:30）。
var IST = time.FixedZone("IST", 5*60*60+30*60)

// localLayouts はオフセットを含まないローカル壁時計の入力形式。
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ToLocal はUTC時刻をISTへ変換する。
func ToLocal(t time.Time) time.Time {
	return t.In(IST)
}

// ToUTC は任意のゾーンの時刻をUTCへ変換する。
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// ParseScheduleTime は予約公開時刻の入力文字列をUTC時刻へ変換する。
// RFC 3339（オフセットまたはZ付き）はそのオフセットで解釈し、
// オフセットのない壁時計表記はISTとして解釈する。
func ParseScheduleTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty schedule time")
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, IST); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized schedule time: %q", s)
}

// FormatLocal はボット向けメッセージ用にIST表記の文字列を返す。
func FormatLocal(t time.Time) string {
	return ToLocal(t).Format("2006-01-02 15:04") + " IST"
}
