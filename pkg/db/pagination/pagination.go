package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Cursor points at the last item of the previous page.
type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

func EncodeCursor(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" {
		return nil, ErrInvalidPageToken
	}
	return &c, nil
}

// ClampPageSize maps a missing or non-positive size to DefaultPageSize and caps it at MaxPageSize.
func ClampPageSize(size int) int32 {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	}
	return int32(size)
}

// BuildCursorPageInfo expects items fetched with a limit of pageSize+1.
func BuildCursorPageInfo[T any](items []T, pageSize int32, tokenOf func(T) string) *PageInfo {
	if pageSize <= 0 {
		return nil
	}
	if len(items) <= int(pageSize) {
		return &PageInfo{HasMore: false}
	}
	return &PageInfo{
		HasMore:       true,
		NextPageToken: tokenOf(items[pageSize-1]),
	}
}

// TokenFor encodes the cursor of a row ordered by (created_at desc, id desc).
func TokenFor(id string, createdAt time.Time) string {
	token, err := EncodeCursor(Cursor{ID: id, CreatedAt: createdAt.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return ""
	}
	return token
}
