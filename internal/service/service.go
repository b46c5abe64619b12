package service

import (
	"context"
	"crowdfunding-platform/internal/events"
	"crowdfunding-platform/internal/util"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Clock 返回当前时间，测试中可替换
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// publish 发布领域事件，失败只记录日志，不影响已提交的业务数据
func publish(ctx context.Context, publisher events.Publisher, eventType, key string, data map[string]interface{}) {
	event := events.Event{
		Type:       eventType,
		Key:        key,
		OccurredAt: utcNow(),
		Data:       data,
	}
	if err := publisher.Publish(ctx, event); err != nil {
		util.Logger.Warn("发布事件失败", zap.String("type", eventType), zap.Error(err))
	}
}

func campaignKey(id int) string {
	return fmt.Sprintf("campaign:%d", id)
}
