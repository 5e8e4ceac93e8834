package model

import (
	"fmt"

	"github.com/Faultbox/chunkforge/pkg/chunk"
	"github.com/Faultbox/chunkforge/pkg/math"
)

// bindTolerance bounds |WorldToBone * BoneToWorld - I| per element.
const bindTolerance = 1e-3

// checkTree verifies that bones form a single tree stored breadth-first with
// contiguous child blocks.
func checkTree(bones []Bone) error {
	if len(bones) == 0 {
		return nil
	}
	roots := 0
	for _, b := range bones {
		if b.Parent < 0 {
			roots++
		}
	}
	if roots != 1 || bones[0].Parent >= 0 {
		return fmt.Errorf("%w: %d roots, first bone parent %d", ErrMultiRoot, roots, bones[0].Parent)
	}

	next := 1
	for i, b := range bones {
		for k, child := range b.Children {
			if child != next+k {
				return fmt.Errorf("%w: children of bone %d (%q) are not the next breadth-first block", ErrInconsistent, i, b.Name)
			}
			if child >= len(bones) || bones[child].Parent != i {
				return fmt.Errorf("%w: bone %d lists child %d that does not point back", ErrInconsistent, i, child)
			}
		}
		next += len(b.Children)
	}
	if next != len(bones) {
		return fmt.Errorf("%w: %d of %d bones reachable from the root", ErrInconsistent, next, len(bones))
	}
	return nil
}

func checkBind(i int, b Bone) error {
	if !b.WorldToBone.Mul(b.BoneToWorld).ApproxEqual(math.Identity(), bindTolerance) {
		return fmt.Errorf("%w: bind matrices of bone %d (%q) are not inverses", ErrInconsistent, i, b.Name)
	}
	return nil
}

// bonesFromChunk rebuilds the skeleton from its compiled form.
func bonesFromChunk(c *chunk.CompiledBones) ([]Bone, error) {
	bones := make([]Bone, len(c.Bones))
	for i, cb := range c.Bones {
		b := Bone{
			ControllerID: cb.ControllerID,
			Name:         cb.Name,
			LimbID:       cb.LimbID,
			Parent:       -1,
			BoneToWorld:  math.FromMat3x4(cb.BoneToWorld),
			WorldToBone:  math.FromMat3x4(cb.WorldToBone),
		}
		if cb.OffsetParent != 0 {
			b.Parent = i + int(cb.OffsetParent)
			if b.Parent < 0 || b.Parent >= len(c.Bones) {
				return nil, fmt.Errorf("%w: bone %d parent offset %d", ErrInconsistent, i, cb.OffsetParent)
			}
		}
		if cb.NumChildren > 0 {
			first := i + int(cb.OffsetChild)
			if cb.OffsetChild <= 0 || first+int(cb.NumChildren) > len(c.Bones) {
				return nil, fmt.Errorf("%w: bone %d child block [%d,+%d)", ErrInconsistent, i, first, cb.NumChildren)
			}
			b.Children = make([]int, cb.NumChildren)
			for k := range b.Children {
				b.Children[k] = first + k
			}
		}
		if err := checkBind(i, b); err != nil {
			return nil, err
		}
		bones[i] = b
	}
	if err := checkTree(bones); err != nil {
		return nil, err
	}
	return bones, nil
}

// bonesToChunk compiles the skeleton.
func bonesToChunk(bones []Bone) (*chunk.CompiledBones, error) {
	if err := checkTree(bones); err != nil {
		return nil, err
	}
	c := &chunk.CompiledBones{Bones: make([]chunk.CompiledBone, len(bones))}
	for i, b := range bones {
		cb := chunk.CompiledBone{
			ControllerID: b.ControllerID,
			Name:         b.Name,
			LimbID:       b.LimbID,
			NumChildren:  uint32(len(b.Children)),
			WorldToBone:  b.WorldToBone.Mat3x4(),
			BoneToWorld:  b.BoneToWorld.Mat3x4(),
		}
		if b.Parent >= 0 {
			cb.OffsetParent = int32(b.Parent - i)
		}
		if len(b.Children) > 0 {
			cb.OffsetChild = int32(b.Children[0] - i)
		}
		c.Bones[i] = cb
	}
	return c, nil
}

// PhysicalOrder returns bone indices in depth-first pre-order, the order of
// the physical skeleton.
func PhysicalOrder(bones []Bone) []int {
	if len(bones) == 0 {
		return nil
	}
	order := make([]int, 0, len(bones))
	var visit func(i int)
	visit = func(i int) {
		order = append(order, i)
		for _, c := range bones[i].Children {
			visit(c)
		}
	}
	visit(0)
	return order
}

// checkPhysical verifies that physical bones follow PhysicalOrder with
// matching parent links.
func checkPhysical(bones []Bone, phys []chunk.PhysicalBone) error {
	if len(phys) == 0 {
		return nil
	}
	order := PhysicalOrder(bones)
	if len(phys) != len(order) {
		return fmt.Errorf("%w: %d physical bones for %d bones", ErrInconsistent, len(phys), len(order))
	}
	position := make([]int, len(bones))
	for k, bi := range order {
		position[bi] = k
	}
	for k, p := range phys {
		bi := order[k]
		wantParent := int32(-1)
		if parent := bones[bi].Parent; parent >= 0 {
			wantParent = int32(position[parent])
		}
		if int(p.BoneID) != bi || p.ParentID != wantParent || int(p.NumChildren) != len(bones[bi].Children) {
			return fmt.Errorf("%w: physical bone %d is not bone %d in depth-first order", ErrInconsistent, k, bi)
		}
	}
	return nil
}
