// Package alerting 把需要人工关注的错误广播到日志与 Webhook 等渠道。
package alerting
