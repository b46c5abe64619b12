package interfaces

import "errors"

// ErrStateChanged 条件更新时目标记录的状态已被其他请求修改
var ErrStateChanged = errors.New("记录状态已变更")
