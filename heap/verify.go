package heap

import "fmt"

// VerifyError describes one invariant violation found by Verify. Address is
// the object or card address the violation was found at.
type VerifyError struct {
	Address Address
	Message string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("heap: verify failed at %#x: %s", uintptr(e.Address), e.Message)
}

// Verify walks every chunk and audits the side-table invariants:
// every card's recorded start byte decodes to a real, word-aligned object
// boundary that is the earliest object starting in that card; any card a
// multi-card object merely passes through (without an object of its own
// beginning there) must read kNoObjectStart; and every live object that
// holds a pointer into young space has its card marked in the remembered
// set, marked or not — an unmarked object can still hold a stale young
// pointer a write barrier never updated. It returns every violation found,
// or nil if the heap is consistent.
// This is debug-only tooling: a production collection cycle never calls it.
func (s *OldSpace) Verify() []error {
	s.Flush()

	var errs []error
	cardSize := s.meta.CardSize()

	s.chunks.Each(func(chunk *Chunk) {
		seenStartInCard := make(map[uintptr]Address)

		addr := chunk.Start()
		for !hasSentinelAt(addr) {
			size, live := classify(addr, s.classes, s.objects)
			if uintptr(addr)%WordSize != 0 {
				errs = append(errs, &VerifyError{addr, "object address is not word-aligned"})
			}

			if live {
				firstCard := s.meta.cardIndex(chunk, addr)
				// endCard holds the object's end; the cards strictly between
				// firstCard and endCard are wholly covered by it.
				endCard := s.meta.cardIndex(chunk, addr.Add(size))
				if existing, ok := seenStartInCard[firstCard]; !ok || addr < existing {
					seenStartInCard[firstCard] = addr
				}
				for c := firstCard + 1; c < endCard; c++ {
					if chunk.starts[c] != kNoObjectStart {
						errs = append(errs, &VerifyError{
							chunk.start.Add(c * cardSize),
							"card interior to a multi-card object has a recorded start",
						})
					}
				}

				holdsYoungPointer := false
				s.objects.IteratePointers(addr, func(slot, target Address) {
					if s.young.Includes(target) {
						holdsYoungPointer = true
					}
				})
				if holdsYoungPointer && !s.meta.IsRemembered(chunk, addr) {
					errs = append(errs, &VerifyError{addr, "holds a young pointer but its card is not remembered"})
				}
			}

			addr = addr.Add(size)
		}

		for card, want := range seenStartInCard {
			got := chunk.starts[card]
			if got == kNoObjectStart {
				errs = append(errs, &VerifyError{chunk.start.Add(card * cardSize), "card has objects but no recorded start"})
				continue
			}
			cardBase := chunk.start.Add(card * cardSize)
			decoded := ObjectAddressFromStart(cardBase, got)
			if decoded != want {
				errs = append(errs, &VerifyError{decoded, "recorded start does not decode to the earliest object in its card"})
			}
		}
	})

	return errs
}
