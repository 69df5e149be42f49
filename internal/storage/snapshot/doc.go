// Package snapshot encodes and opens slot buffers.
//
// A slot buffer is the uncompressed, unencrypted serialization of one
// save. Layout (all integers big-endian):
//
//	[FormatVersion:4][SchemaVersion:4][MetaLen:4][MetaJSON:MetaLen]
//	[LevelCount:4]
//	  repeated: [LevelID:2+n][Offset:4][Length:4]
//	level sections, each:
//	  [RecordCount:4]
//	  repeated record:
//	    [Level:2+n][Name:2+n][TypeID:2+n][Flags:1]
//	    [SpawnLen:4][SpawnBlob:SpawnLen]
//	    [FieldCount:2]
//	    repeated: [Tag:2][Len:4][Data:Len]
//
// Offsets are absolute from the start of the buffer, so a reader can seek
// to one level's section without decoding the others. A damaged section
// only fails that level; a damaged header or index fails the whole buffer.
package snapshot
