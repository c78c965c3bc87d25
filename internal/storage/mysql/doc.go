// Package mysql 将生命周期事件归档到 MySQL，负责连接池配置与内嵌 SQL 迁移。
package mysql
