package routing

import (
	"time"
)

const (
	// defaultWindow 未指定时长时回看 24 小时
	defaultWindow = 24 * time.Hour
	// maxWindow 显式请求的时长上限，超出时收敛而不是拒绝
	maxWindow = 168 * time.Hour

	// defaultMessageCap 默认窗口的取数上限
	defaultMessageCap = 30
	// explicitMessageCap 显式窗口的取数上限
	explicitMessageCap = 100
)

// TimeWindowResolver 时间窗口解析器
// 时长由上游分类协作方从自由文本中抽取，这里只落实策略
type TimeWindowResolver struct {
	now func() time.Time
}

// NewTimeWindowResolver 创建时间窗口解析器
func NewTimeWindowResolver() *TimeWindowResolver {
	return &TimeWindowResolver{now: time.Now}
}

// Resolve 解析时间窗口
// hint 为 0 或负数按未指定处理；显式时长超过 7 天时收敛到 7 天。
// 取数上限是固定策略常数：默认窗口 30 条，显式窗口 100 条
func (r *TimeWindowResolver) Resolve(hint time.Duration) Window {
	end := r.now()

	if hint <= 0 {
		return Window{
			Start:      end.Add(-defaultWindow),
			End:        end,
			MessageCap: defaultMessageCap,
		}
	}

	if hint > maxWindow {
		hint = maxWindow
	}

	return Window{
		Start:      end.Add(-hint),
		End:        end,
		MessageCap: explicitMessageCap,
	}
}
