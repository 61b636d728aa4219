// Package session runs long-lived AFK game sessions, one per identity.
//
// Invariants:
//   - At most one live Session exists per identity.
//   - A Session's mutable state is owned by its run goroutine; observers only
//     see published Status snapshots and the session EventLog.
//   - Timers, the safety ticker and the game connection are released before a
//     Session reports a terminal state.
//   - The reconnect count never exceeds the policy's MaxAttempts.
//
// Usage:
//
//	reg, _ := session.NewRegistry(session.RegistryOptions{Dialer: dialer})
//	st, err := reg.StartSession(ctx, "alice", gameclient.Config{Host: "mc.example.net"})
//	_ = reg.SendCommand(ctx, "alice", "/spawn")
//	st, _ = reg.GetStatus("alice", st.Cursor)
//	_ = reg.StopSession(ctx, "alice")
package session
