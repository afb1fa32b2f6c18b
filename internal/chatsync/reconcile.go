package chatsync

// Resolve decides what to do with one item given its local metadata, its
// remote manifest entry and the local content hash. local or remote may
// be nil. This is a pure decision function with no I/O; there is no merge
// step, the losing remote object is backed up before being overwritten.
//
// The rules, in order:
//  1. only local              -> new-local
//  2. only remote             -> new-remote
//  3. hashes equal            -> skip
//  4. local newer             -> push
//  5. remote newer            -> pull
//  6. same time, hashes differ -> push (ties favour this device)
//  7. neither side            -> skip
func Resolve(local *Metadata, remote *ManifestEntry, localHash string) Action {
	switch {
	case local == nil && remote == nil:
		return ActionSkip
	case remote == nil:
		return ActionNewLocal
	case local == nil:
		return ActionNewRemote
	}

	if localHash != "" && localHash == remote.SHA {
		return ActionSkip
	}

	l, r := local.LastActivity(), remote.LastActivity()

	switch {
	case l > r:
		return ActionPush
	case r > l:
		return ActionPull
	default:
		return ActionPush
	}
}

// ResolveAll applies Resolve to the union of local and remote identities.
// hashes maps identity to local content hash; a missing hash never
// matches a remote entry.
func ResolveAll(local map[string]Metadata, remote map[string]ManifestEntry, hashes map[string]string) map[string]Action {
	out := make(map[string]Action, len(local)+len(remote))

	for id, m := range local {
		m := m

		var entry *ManifestEntry
		if e, ok := remote[id]; ok {
			entry = &e
		}

		out[id] = Resolve(&m, entry, hashes[id])
	}

	for id, e := range remote {
		if _, ok := local[id]; ok {
			continue
		}

		e := e
		out[id] = Resolve(nil, &e, "")
	}

	return out
}
