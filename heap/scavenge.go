package heap

// VisitRememberedSet scans every dirty card in the space and calls visit
// once per outgoing pointer slot found in the objects that start in or
// extend into that card,
// clearing each card's remembered byte first and re-dirtying it only if
// visit reports that the slot still references young space.
// This is the old-space half of a generational scavenge's root scan.
func (s *OldSpace) VisitRememberedSet(visit PointerVisitor) {
	s.Flush()
	cardSize := s.meta.CardSize()

	s.chunks.Each(func(chunk *Chunk) {
		numCards := uintptr(len(chunk.remembered))
		earliestIterationStart := chunk.Start()

		card := uintptr(0)
		for card < numCards {
			// Word-skip optimisation: if we're at a word-aligned card index
			// and the next WordSize remembered bytes are all clean, skip
			// them in one step instead of testing each individually.
			if card%WordSize == 0 && card+WordSize <= numCards {
				allClean := true
				for i := uintptr(0); i < WordSize; i++ {
					if chunk.remembered[card+i] != kNoNewSpacePointers {
						allClean = false
						break
					}
				}
				if allClean {
					card += WordSize
					continue
				}
			}

			if chunk.remembered[card] != kNoNewSpacePointers {
				cardBase := chunk.Start().Add(card * cardSize)
				iterationStart := s.findIterationStart(chunk, card, cardBase, earliestIterationStart)

				// Clear the byte before scanning; the sink below re-dirties
				// it if anything still points into young space.
				chunk.remembered[card] = kNoNewSpacePointers
				cardIdx := card
				sink := func(slot, target Address) {
					visit(slot, target)
					// visit may have forwarded the slot; test what it holds now.
					if s.young.Includes(Address(readWord(slot))) {
						chunk.remembered[cardIdx] = 1
					}
				}

				// Scan from iterationStart, which may be before cardBase: an
				// object that merely straddles into this card still has to
				// have its slots visited, since the dirty byte may be the
				// only one covering them. earliestIterationStart prevents
				// the same object being rescanned under a later dirty card.
				cardEnd := cardBase.Add(cardSize)
				addr := iterationStart
				for addr < cardEnd {
					if hasSentinelAt(addr) {
						break
					}
					size, live := classify(addr, s.classes, s.objects)
					if live {
						s.objects.IteratePointers(addr, sink)
					}
					addr = addr.Add(size)
				}
				earliestIterationStart = addr
			}
			card++
		}
	})
}

// findIterationStart locates the first address that is safe to start
// stepping forward from in order to reach every object that begins in
// [cardBase, cardBase+cardSize): it steps backward across prior cards whose
// starts entry is kNoObjectStart (a large object spanning multiple cards),
// never going below earliestIterationStart — the next byte after the most
// recently scanned object, which also guards against backing into a
// not-yet-traversable PromotedTrack interior.
func (s *OldSpace) findIterationStart(chunk *Chunk, card uintptr, cardBase, earliestIterationStart Address) Address {
	if card == 0 {
		return cardBase
	}

	cardSize := s.meta.CardSize()
	idx := card
	pos := cardBase
	for {
		idx--
		pos = pos - Address(cardSize)
		if pos <= earliestIterationStart || chunk.starts[idx] != kNoObjectStart {
			break
		}
	}

	if pos <= earliestIterationStart {
		return earliestIterationStart
	}
	return ObjectAddressFromStart(pos, chunk.starts[idx])
}

// CompleteScavengeGenerational drains the promoted-track chain once: it
// unlinks the current chain (any promotion that happens while this call is
// scanning lands on a fresh chain, to be drained by the caller's next call),
// walks every track's [start, end) range calling visit on each object's
// pointers, and zaps each drained track to a filler. It returns true iff any
// track covered a non-empty range, i.e. there is a chance more work remains.
// Callers loop until it returns false.
func (s *OldSpace) CompleteScavengeGenerational(visit PointerVisitor) bool {
	s.Flush()
	if !s.trackingAllocations {
		panic("heap: CompleteScavengeGenerational called while not tracking allocations")
	}

	foundWork := false
	promoted := s.promotedTrack
	s.promotedTrack = 0

	for promoted != 0 {
		traverse := promoted.Start()
		end := promoted.End()
		if traverse != end {
			foundWork = true
		}

		for traverse != end {
			chunk := s.chunks.ChunkFor(traverse)
			rememberedByte := s.meta.RememberedByte(chunk, traverse)
			sink := func(slot, target Address) {
				visit(slot, target)
				if s.young.Includes(target) {
					*rememberedByte = 1
				}
			}
			size, live := classify(traverse, s.classes, s.objects)
			if live {
				s.objects.IteratePointers(traverse, sink)
			}
			traverse = traverse.Add(size)
		}

		next := promoted.Next()
		promoted.zap(s.classes.Filler)
		promoted = next
	}
	return foundWork
}
