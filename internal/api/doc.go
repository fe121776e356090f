// Package api 暴露激活、消息、技能准入与执行、确认与审计查询的 REST 接口。
package api
