/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package gatekeeper

import (
	"io"
	"net"
	"sync"
)

// splice copies a->b and b->a concurrently. As soon as either direction
// stops, both connections are closed, which unblocks the other copy; splice
// returns once both goroutines have exited.
func splice(a, b net.Conn) (aToB, bToA int64) {
	var (
		once sync.Once
		wg   sync.WaitGroup
	)
	closeBoth := func() {
		a.Close()
		b.Close()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		aToB, _ = io.Copy(b, a)
		once.Do(closeBoth)
	}()
	go func() {
		defer wg.Done()
		bToA, _ = io.Copy(a, b)
		once.Do(closeBoth)
	}()
	wg.Wait()

	return aToB, bToA
}
