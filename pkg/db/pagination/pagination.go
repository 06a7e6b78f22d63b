// Package pagination implements opaque keyset page tokens over snowflake ids.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultSize = 50
	MaxSize     = 250
)

var ErrInvalidToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `json:"page_token"`
	PageSize  int    `json:"page_size" validate:"omitempty,gte=1,lte=250"`
}

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, err
	}
	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// DecodeID returns the id a token points past. An empty token decodes to zero.
func DecodeID(token string) (snowflake.ID, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		return 0, ErrInvalidToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

func EncodeID(id snowflake.ID) string {
	token, err := EncodeCursor(Cursor{ID: id.String()})
	if err != nil {
		return ""
	}
	return token
}

// Size clamps a requested page size into [1, MaxSize], using DefaultSize when unset.
func Size(requested int) int {
	switch {
	case requested <= 0:
		return DefaultSize
	case requested > MaxSize:
		return MaxSize
	default:
		return requested
	}
}

// Page trims rows that were fetched with one extra element to size and
// points the next token at the last kept row. Nil rows are dropped.
func Page[T any](rows []*T, size int, id func(*T) snowflake.ID) ([]T, PageInfo) {
	var info PageInfo
	if len(rows) > size {
		rows = rows[:size]
		info.HasMore = true
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}
	if info.HasMore && len(rows) > 0 {
		info.NextPageToken = EncodeID(id(rows[len(rows)-1]))
	}
	return out, info
}
