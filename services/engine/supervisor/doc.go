// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package supervisor owns the search-engine subprocess and its pipes.
//
// A Supervisor locates the engine executable and its NNUE weights file,
// launches the process, performs the UCI handshake and exposes two
// primitives to higher layers: Send writes one command line, AwaitLine
// polls the accumulated output until it contains a substring or a timeout
// expires.
//
// # Lifecycle
//
//	NotStarted ──Start──► Starting ──handshake ok──► Ready ⇄ Evaluating
//	     ▲                    │                        │
//	     │                    └────────Stop────────────┴──► Terminated
//	     └──────────────── Start (restart) ◄───────────────────┘
//
// Start is accepted from NotStarted and Terminated. A handshake timeout
// leaves the process attached in Starting; callers tear it down with Stop.
//
// # Output Buffering
//
// A reader goroutine copies stdout into a pending buffer as it arrives.
// AwaitLine moves pending bytes into the accumulated buffer every poll
// interval (100ms by default) and checks for the substring. The
// accumulated buffer survives across AwaitLine calls until ClearBuffer,
// so output observed before a timeout is still visible to the next wait.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Start and Stop are serialized
// against each other. Serializing searches is the caller's job.
//
// # Example
//
//	sup := supervisor.New(supervisor.DefaultConfig(),
//	    supervisor.DirLocator{Dir: "/opt/pikafish"}, nil)
//	defer sup.Close()
//
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	_ = sup.Send("isready")
//	out, err := sup.AwaitLine(ctx, "readyok", 5*time.Second)
package supervisor
