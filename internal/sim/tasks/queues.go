package tasks

import "sort"

// Queues holds the task queues: zone -> role -> tasks, in declared (FIFO)
// order.
type Queues map[string]map[Role][]Task

// Zone returns the role queues of zone, creating the entry if needed.
func (q Queues) Zone(zone string) map[Role][]Task {
	zq, ok := q[zone]
	if !ok {
		zq = map[Role][]Task{}
		q[zone] = zq
	}
	return zq
}

// Find returns a pointer into the queue holding the task with key k.
func (q Queues) Find(k Key) *Task {
	t := Task{Kind: k.Kind}
	role, ok := t.Role()
	if !ok {
		return nil
	}
	list := q[k.Zone][role]
	for i := range list {
		if list[i].Key() == k {
			return &list[i]
		}
	}
	return nil
}

// Remove drops the task with key k. It reports whether a task was removed.
func (q Queues) Remove(k Key) bool {
	t := Task{Kind: k.Kind}
	role, ok := t.Role()
	if !ok {
		return false
	}
	zq := q[k.Zone]
	list := zq[role]
	for i := range list {
		if list[i].Key() == k {
			zq[role] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// ZoneNames returns the zones with queues in sorted order.
func (q Queues) ZoneNames() []string {
	out := make([]string, 0, len(q))
	for z := range q {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

// Count returns the total number of queued tasks.
func (q Queues) Count() int {
	n := 0
	for _, zq := range q {
		for _, list := range zq {
			n += len(list)
		}
	}
	return n
}

// FirstWithRoom returns the first task of role in zone that still accepts
// workers.
func (q Queues) FirstWithRoom(zone string, role Role) *Task {
	list := q[zone][role]
	for i := range list {
		if list[i].HasRoom() {
			return &list[i]
		}
	}
	return nil
}
