// Package workspace 负责激活工作区中的引导文件：创建激活时写入，完成引导时删除。
package workspace
