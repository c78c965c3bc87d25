// Package migrations 内嵌事件归档所需的 SQL 迁移文件。
package migrations

import "embed"

// Files 暴露所有 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS
