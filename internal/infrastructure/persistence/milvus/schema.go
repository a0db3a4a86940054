// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionKBTopics 知识库话题集合
	CollectionKBTopics = "kb_topics"

	// VectorDimension 向量维度
	VectorDimension = 1024
)

// KBTopicsSchema 知识库话题 Collection Schema
// 群之间靠 group_jid 标量过滤隔离；JID 含 @ 等字符，
// 不能作为 Milvus 分区名，因此不按群建分区
func KBTopicsSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionKBTopics,
		Description:    "Distilled group chat topics for semantic search",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": "1024",
				},
			},
			{
				Name:     "group_jid",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "subject",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "1024",
				},
			},
			{
				Name:     "summary",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "source_key",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "260",
				},
			},
			{
				Name:     "created_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}
}
