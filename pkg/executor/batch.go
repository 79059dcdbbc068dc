package executor

import (
	"context"
	"sync"
)

// BatchItem 批量执行中单个计划的结果
type BatchItem struct {
	Plan   Plan    // 原始计划
	Result *Result // 执行结果，含轨迹
	Err    error   // 终态错误，成功时为 nil
}

// ExecuteBatch 并发执行多个计划。
// 工作协程数受配置约束，结果与输入顺序一一对应；
// 单个符号失败不影响其余符号，截止时间到期后剩余计划标记为超时。
func (e *Executor) ExecuteBatch(ctx context.Context, plans []Plan) []BatchItem {
	items := make([]BatchItem, len(plans))
	if len(plans) == 0 {
		return items
	}

	concurrency := e.concurrency
	if concurrency > len(plans) {
		concurrency = len(plans)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				result, err := e.Execute(ctx, plans[i])
				items[i] = BatchItem{Plan: plans[i], Result: result, Err: err}
			}
		}()
	}

	for i := range plans {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return items
}
