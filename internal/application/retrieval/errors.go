package retrieval

import (
	"errors"
)

var (
	// ErrEmptyQuery 查询文本与向量同时为空
	ErrEmptyQuery = errors.New("retrieval: query text and embedding are both empty")
	// ErrMissingGroup 未指定群
	ErrMissingGroup = errors.New("retrieval: group jid is required")
)
