// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor multiplexes listening and connected sockets over epoll.
//
// Every socket lives in a registry slab keyed by a Token. A goroutine that
// receives an event takes the entry out of the registry, services it and puts
// it back, so two goroutines never touch the same connection at once. Sockets
// are registered one-shot and edge-triggered and re-armed after each service.
package reactor
