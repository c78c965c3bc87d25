package workspace

import (
	"sort"
	"strconv"
	"sync"

	xerrors "SwarmFlow/internal/errors"
)

var (
	// ErrCapacityReached 表示工作区数量已达上限。
	ErrCapacityReached = xerrors.New(xerrors.CodeCapacity, "workspace capacity reached")
	// ErrNotFound 表示工作区不存在。
	ErrNotFound = xerrors.New(xerrors.CodeNotFound, "workspace not found")
)

// Limits 描述供给时的容量上限。
type Limits struct {
	MaxConcurrent     int
	MaxPerEnvironment int
}

// MemoryStore 以内存方式保存资源快照，读取时返回副本。
type MemoryStore struct {
	mu        sync.RWMutex
	resources map[string]*Resource
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{resources: make(map[string]*Resource)}
}

// Put 按 ID 整体覆盖快照。
func (m *MemoryStore) Put(r Resource) {
	clone := r.clone()
	m.mu.Lock()
	m.resources[r.WorkspaceID] = &clone
	m.mu.Unlock()
}

// Get 返回快照副本。
func (m *MemoryStore) Get(id string) (Resource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return Resource{}, false
	}
	return r.clone(), true
}

// List 按 ID 排序返回所有快照副本。
func (m *MemoryStore) List() []Resource {
	m.mu.RLock()
	out := make([]Resource, 0, len(m.resources))
	for _, r := range m.resources {
		out = append(out, r.clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out
}

// Update 在锁内修改快照，工作区不存在时返回 ErrNotFound。
func (m *MemoryStore) Update(id string, fn func(*Resource)) (Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[id]
	if !ok {
		return Resource{}, xerrors.Wrap(xerrors.CodeNotFound, ErrNotFound, "workspace not found", xerrors.WithMetadata("workspace_id", id))
	}
	fn(r)
	return r.clone(), nil
}

// Delete 删除快照。
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	delete(m.resources, id)
	m.mu.Unlock()
}

// ActiveCounts 返回占用容量的工作区总数与指定环境下的数量。
func (m *MemoryStore) ActiveCounts(environment string) (total, inEnvironment int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCountsLocked(environment)
}

// Reserve 在同一临界区内检查容量并登记占位快照。超出上限时返回的错误通过
// limit 元数据指明触发的是哪一项限制。
func (m *MemoryStore) Reserve(placeholder Resource, limits Limits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, inEnv := m.activeCountsLocked(placeholder.Environment)
	if limits.MaxConcurrent > 0 && total >= limits.MaxConcurrent {
		return xerrors.Wrap(xerrors.CodeCapacity, ErrCapacityReached, "maximum concurrent workspaces reached",
			xerrors.WithMetadata("limit", "max_concurrent_workspaces"),
			xerrors.WithMetadata("value", strconv.Itoa(limits.MaxConcurrent)),
		)
	}
	if limits.MaxPerEnvironment > 0 && inEnv >= limits.MaxPerEnvironment {
		return xerrors.Wrap(xerrors.CodeCapacity, ErrCapacityReached, "maximum workspaces for "+placeholder.Environment+" reached",
			xerrors.WithMetadata("limit", "max_workspaces_per_environment"),
			xerrors.WithMetadata("value", strconv.Itoa(limits.MaxPerEnvironment)),
			xerrors.WithMetadata("environment", placeholder.Environment),
		)
	}
	clone := placeholder.clone()
	m.resources[placeholder.WorkspaceID] = &clone
	return nil
}

func (m *MemoryStore) activeCountsLocked(environment string) (total, inEnvironment int) {
	for _, r := range m.resources {
		if !r.Status.Active() {
			continue
		}
		total++
		if r.Environment == environment {
			inEnvironment++
		}
	}
	return total, inEnvironment
}
