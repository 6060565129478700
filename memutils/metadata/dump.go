package metadata

import (
	"fmt"
	"io"
	"strings"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/memmap/memutils"
)

const dumpIndent = "    "

func (t *Tree) dumpLine(builder *strings.Builder, index int32, depth int) {
	n := t.nodes[index]

	state := "USED"
	if n.free {
		state = "FREE"
	}
	kind := "NORMAL"
	if n.static {
		kind = "STATIC"
	}

	builder.WriteString(strings.Repeat(dumpIndent, depth))
	fmt.Fprintf(builder, "@%08x:@%08x:%08x %s %s\n", n.startAddr, n.endAddr, n.size, state, kind)
}

func (t *Tree) dumpChildren(builder *strings.Builder, level int32, depth int, recursive bool) {
	for child := t.nodes[level].first; child != noNode; child = t.nodes[child].next {
		t.dumpLine(builder, child, depth)
		if recursive && t.nodes[child].hasChildren() {
			t.dumpChildren(builder, child, depth+1, recursive)
		}
	}
}

// Sprint renders the buffer as a single dump line. With recursive set, the buffers nested in it
// follow, each nesting depth indented one step further.
func (t *Tree) Sprint(handle BufferHandle, recursive bool) (string, error) {
	index, err := t.resolve(handle)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	t.dumpLine(&builder, index, 0)
	if recursive {
		t.dumpChildren(&builder, index, 1, recursive)
	}

	return builder.String(), nil
}

// WriteLevel writes one dump line for every region of level to w. A level that was never split
// is written as a single free region.
func (t *Tree) WriteLevel(w io.Writer, level BufferHandle, recursive bool) error {
	index, err := t.resolve(level)
	if err != nil {
		return err
	}

	var builder strings.Builder
	if t.nodes[index].first == noNode {
		lvl := t.nodes[index]
		fmt.Fprintf(&builder, "@%08x:@%08x:%08x FREE NORMAL\n", lvl.startAddr, lvl.endAddr, lvl.size)
	} else {
		t.dumpChildren(&builder, index, 0, recursive)
	}

	_, err = io.WriteString(w, builder.String())
	return err
}

// PrintDetailedMap writes the level's totals and a Buffers array describing each region into
// json. Occupied regions that contain buffers carry them in a nested Children object.
func (t *Tree) PrintDetailedMap(level BufferHandle, json *jwriter.ObjectState) error {
	index, err := t.resolve(level)
	if err != nil {
		return err
	}

	t.printLevel(index, json)
	return nil
}

func (t *Tree) printLevel(level int32, json *jwriter.ObjectState) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	_ = t.AddDetailedStatistics(t.handle(level), &stats)

	json.Name("TotalBytes").Int(stats.LevelBytes)
	json.Name("UnusedBytes").Int(stats.FreeBytes())
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("UnusedRanges").Int(stats.UnusedRangeCount)

	buffers := json.Name("Buffers").Array()
	defer buffers.End()

	for child := t.nodes[level].first; child != noNode; child = t.nodes[child].next {
		c := t.nodes[child]

		obj := buffers.Object()
		obj.Name("Start").Int(c.startAddr)
		obj.Name("End").Int(c.endAddr)
		obj.Name("Size").Int(c.size)
		if c.free {
			obj.Name("Type").String("FREE")
		} else {
			obj.Name("Type").String("USED")
			obj.Name("Static").Bool(c.static)
			if c.name != "" {
				obj.Name("Name").String(c.name)
			}
		}

		if !c.free && c.hasChildren() {
			children := obj.Name("Children").Object()
			t.printLevel(child, &children)
			children.End()
		}

		obj.End()
	}
}
