/*
Package chronokv provides the in-memory write buffer of a temporal,
multi-versioned LSM key/value store.

chronokv's memtable holds recently-written records before they are
flushed to sorted, immutable storage (flushing, compaction, and the
on-disk formats that follow are outside this module's scope). Two
memtable modes are supported:

  - a single-version mode, ordered by user key ascending and sequence
    number descending, matching a conventional LSM memtable;
  - a multi-version (MV) mode, where every record additionally carries
    an application-supplied valid_time, ordered by user key ascending,
    valid_time descending, then sequence number descending. MV mode
    answers two kinds of temporal reads: "what value was valid for this
    key at time T" (Memtable.GetMV) and "what values were valid for this
    key at any point across [T_lo, T_hi)" (Memtable.GetMVRange).

The internal/batch package provides WriteBatchMV, an atomic multi-write
container whose records are replayed into a Memtable with sequence
numbers assigned positionally at replay time.

# Concurrency

A Memtable is safe for concurrent use: one writer at a time (serialized
by the caller, conventionally the owning log writer) and any number of
concurrent readers, with no locking on the read path. Individual
MemtableIterator instances are not safe for concurrent use; each reader
goroutine should obtain its own.

Reference: original_source/db/memtable.cc, original_source/db/dbformat_mv_test.cc
*/
package chronokv
