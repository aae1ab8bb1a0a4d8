// Package graph computes dependency structure over a taskset's tasks:
// cycle detection, level-wise execution order, and DOT/Mermaid renderings.
// All functions are pure; edges run from a prerequisite to the tasks that
// depend on it.
package graph

import (
	"sort"

	"necrocode/taskset"
)

// DetectCycle returns the first dependency cycle found as a chain of task
// ids closing on itself ("1" -> "2" -> "1"), or nil when the graph is
// acyclic. Dependencies on unknown ids are not edges; document validation
// rejects them upstream.
func DetectCycle(tasks []taskset.Task) []string {
	deps := make(map[string][]string, len(tasks))
	for i := range tasks {
		deps[tasks[i].ID] = tasks[i].Dependencies
	}

	visited := make(map[string]bool, len(tasks))
	inStack := make(map[string]bool, len(tasks))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		inStack[id] = true
		path = append(path, id)

		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known {
				continue
			}
			if !visited[dep] {
				if visit(dep) {
					return true
				}
				continue
			}
			if inStack[dep] {
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), dep)
				return true
			}
		}

		inStack[id] = false
		path = path[:len(path)-1]
		return false
	}

	for i := range tasks {
		if !visited[tasks[i].ID] && visit(tasks[i].ID) {
			return cycle
		}
	}
	return nil
}

// ExecutionOrder groups task ids into dependency levels: level k holds every
// task whose prerequisites all sit in earlier levels, so one level can run
// in parallel. Ids within a level sort hierarchically. Tasks trapped in a
// cycle never reach in-degree zero; they come back as one final level so
// callers see every task exactly once.
func ExecutionOrder(tasks []taskset.Task) [][]string {
	if len(tasks) == 0 {
		return nil
	}

	known := make(map[string]bool, len(tasks))
	for i := range tasks {
		known[tasks[i].ID] = true
	}

	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for i := range tasks {
		id := tasks[i].ID
		indegree[id] = 0
		for _, dep := range tasks[i].Dependencies {
			if !known[dep] {
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var current []string
	for i := range tasks {
		if indegree[tasks[i].ID] == 0 {
			current = append(current, tasks[i].ID)
		}
	}
	sortIDs(current)

	var levels [][]string
	emitted := make(map[string]bool, len(tasks))
	for len(current) > 0 {
		levels = append(levels, current)
		var next []string
		for _, id := range current {
			emitted[id] = true
			for _, child := range dependents[id] {
				indegree[child]--
				if indegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		sortIDs(next)
		current = next
	}

	if len(emitted) < len(tasks) {
		var residue []string
		for i := range tasks {
			if !emitted[tasks[i].ID] {
				residue = append(residue, tasks[i].ID)
			}
		}
		sortIDs(residue)
		levels = append(levels, residue)
	}
	return levels
}

func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return taskset.CompareIDs(ids[i], ids[j]) < 0 })
}
