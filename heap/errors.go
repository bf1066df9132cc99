package heap

import "errors"

// ErrMemoryFull is returned when the heap cannot grow: the configured
// budget is exhausted or the system refused more memory. The flag behind
// MemoryFull is raised at the same time and stays up until a collection
// returns whole blocks to the system.
var ErrMemoryFull = errors.New("heap: memory exhausted")

// ErrStringTooLarge is returned for string contents whose byte length
// exceeds MaxStringBytes.
var ErrStringTooLarge = errors.New("heap: string too large")

// ErrVectorTooLarge is returned for record requests whose slot or extra
// word counts fall outside what a header can describe.
var ErrVectorTooLarge = errors.New("heap: vector too large")

// ErrCollectInProgress is returned by Collect when a cycle is already
// running or collection is inhibited, including permanently after pure
// storage overflows.
var ErrCollectInProgress = errors.New("heap: collection inhibited or in progress")

// ErrPureWrite is returned by mutators applied to objects living in pure
// storage.
var ErrPureWrite = errors.New("heap: write to pure object")

// ErrBadKind is returned by MakeSpecialized for record kinds that carry
// side state and therefore need their dedicated constructor.
var ErrBadKind = errors.New("heap: kind requires its dedicated constructor")

// ErrWrongType is returned by typed accessors handed a value of another
// type.
var ErrWrongType = errors.New("heap: wrong value type")
