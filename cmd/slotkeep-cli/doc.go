// slotkeep-cli inspects and maintains save slots without a running host:
// listing, verifying, copying, deleting and dumping slot contents.
package main
