// Package knowledge 为 operational 对话提供可引用的领域知识片段。
package knowledge
