// Package assistant 实现 operational 阶段的消息路由。
//
// 每条消息先经过安全筛查，命中需要持证专业人士的类别时直接拒绝并给出转介；
// 然后识别意图：技能调用交给执行服务（准入、配额、能量、确认），
// 普通对话交给语言模型，模型不可用时返回列出原生技能的默认回复。
// 可选的语义匹配用向量相似度把自然语言请求对应到原生技能。
package assistant
