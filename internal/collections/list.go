// Package collections has generic containers missing from the standard
// library.
package collections

import "iter"

// DoublyLinkedList is a list with O(1) removal of arbitrary nodes.
//
// The zero value is an empty list. It is not safe for concurrent use.
type DoublyLinkedList[T any] struct {
	// root is a sentinel: root.next is the first node and root.prev the
	// last. It is lazily initialized.
	root   DoublyLinkedListNode[T]
	length int
}

// DoublyLinkedListNode holds one value of a DoublyLinkedList.
type DoublyLinkedListNode[T any] struct {
	Value T

	list *DoublyLinkedList[T]
	prev *DoublyLinkedListNode[T]
	next *DoublyLinkedListNode[T]
}

func (list *DoublyLinkedList[T]) lazyInit() {
	if list.root.next == nil {
		list.root.next = &list.root
		list.root.prev = &list.root
	}
}

// Append adds a value at the end of the list and returns its node.
func (list *DoublyLinkedList[T]) Append(value T) *DoublyLinkedListNode[T] {
	list.lazyInit()

	node := &DoublyLinkedListNode[T]{Value: value, list: list}
	list.linkLast(node)
	return node
}

func (list *DoublyLinkedList[T]) linkLast(node *DoublyLinkedListNode[T]) {
	last := list.root.prev
	node.prev = last
	node.next = &list.root
	last.next = node
	list.root.prev = node
	list.length++
}

// Len returns the number of values in the list.
func (list *DoublyLinkedList[T]) Len() int {
	return list.length
}

// First returns the oldest node of the list, or nil if it is empty.
func (list *DoublyLinkedList[T]) First() *DoublyLinkedListNode[T] {
	if list.length == 0 {
		return nil
	}
	return list.root.next
}

// Iter yields the list's values from first to last.
//
// Nodes must not be added or removed while iterating.
func (list *DoublyLinkedList[T]) Iter() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		if list.length == 0 {
			return
		}

		i := 0
		for node := list.root.next; node != &list.root; node = node.next {
			if !yield(i, node.Value) {
				return
			}
			i++
		}
	}
}

// Remove unlinks the node from its list.
//
// Removing a node twice has no effect.
func (node *DoublyLinkedListNode[T]) Remove() {
	list := node.list
	if list == nil {
		return
	}

	node.prev.next = node.next
	node.next.prev = node.prev
	node.prev = nil
	node.next = nil
	node.list = nil
	list.length--
}

// MoveToBack makes the node the last of its list.
//
// It has no effect on a removed node.
func (node *DoublyLinkedListNode[T]) MoveToBack() {
	list := node.list
	if list == nil || list.root.prev == node {
		return
	}

	node.Remove()
	node.list = list
	list.linkLast(node)
}
