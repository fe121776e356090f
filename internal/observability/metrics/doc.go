// Package metrics 以 Prometheus 格式暴露 HTTP、准入判定与阶段迁移指标。
package metrics
