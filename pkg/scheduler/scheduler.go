package scheduler

import "context"

// Job 可被调度执行的任务
type Job interface{ Run(ctx context.Context) }

// FuncJob 函数式Job适配器
type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }
