package cache

// node is an element of the doubly linked list.
type node[T any] struct {
	data T
	prev *node[T]
	next *node[T]
}

// doublyLinkedList keeps the recency order of an mru. Head is the most recently used.
type doublyLinkedList[T any] struct {
	head *node[T]
	tail *node[T]
	size int
}

func (dll *doublyLinkedList[T]) count() int {
	return dll.size
}

// addToHead inserts data at the head of the list and returns its node.
func (dll *doublyLinkedList[T]) addToHead(data T) *node[T] {
	n := &node[T]{data: data, next: dll.head}
	dll.linkHead(n)
	return n
}

func (dll *doublyLinkedList[T]) linkHead(n *node[T]) {
	n.prev = nil
	n.next = dll.head
	if dll.head != nil {
		dll.head.prev = n
	} else {
		dll.tail = n
	}
	dll.head = n
	dll.size++
}

// moveToHead makes n the most recently used node.
func (dll *doublyLinkedList[T]) moveToHead(n *node[T]) {
	if n == dll.head {
		return
	}
	dll.unlink(n)
	dll.linkHead(n)
}

// removeTail removes and returns the tail node's data.
func (dll *doublyLinkedList[T]) removeTail() (T, bool) {
	if dll.tail == nil {
		var d T
		return d, false
	}
	n := dll.tail
	dll.unlink(n)
	return n.data, true
}

// unlink unchains n from the list.
func (dll *doublyLinkedList[T]) unlink(n *node[T]) {
	if n == dll.head {
		dll.head = n.next
	}
	if n == dll.tail {
		dll.tail = n.prev
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	n.next = nil
	n.prev = nil
	dll.size--
}
