// Package ai 定义协调引擎消费的预测与优化协作方接口，并提供不依赖机器学习的
// 启发式默认实现。调用方只依赖接口，可替换为外部脚本或远程服务。
package ai
