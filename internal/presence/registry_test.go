package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeHandle string

func (h fakeHandle) ConnID() string { return string(h) }

func TestRegisterOverwrites(t *testing.T) {
	r := NewRegistry()

	// 同一身份两条连接：后者覆盖前者
	r.Register("u1", fakeHandle("h1"))
	r.Register("u1", fakeHandle("h2"))

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, "h2", r.Snapshot()["u1"])

	// 旧句柄断开不应影响当前登记
	r.Unregister(fakeHandle("h1"))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, "h2", r.Snapshot()["u1"])

	// 现句柄断开后条目消失
	r.Unregister(fakeHandle("h2"))
	assert.Equal(t, 0, r.Count())
}

func TestRegisterIgnoresEmpty(t *testing.T) {
	r := NewRegistry()

	r.Register("", fakeHandle("h1"))
	r.Register("u1", nil)
	assert.Equal(t, 0, r.Count())

	r.Unregister(nil) // 不应panic
}

func TestUnregisterRemovesAllMatching(t *testing.T) {
	r := NewRegistry()

	// 同一连接被登记到两个身份（客户端声明身份未绑定连接）
	r.Register("u1", fakeHandle("shared"))
	r.Register("u2", fakeHandle("shared"))
	assert.Equal(t, 2, r.Count())

	r.Unregister(fakeHandle("shared"))
	assert.Equal(t, 0, r.Count())
}

func TestSnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", fakeHandle("h1"))

	snap := r.Snapshot()
	snap["u2"] = "h2"
	assert.Equal(t, 1, r.Count())
}
