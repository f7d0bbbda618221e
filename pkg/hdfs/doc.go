/*
Package hdfs is a client for NameNode/DataNode filesystems built on a native
client capability (package native).

# Overview

A Connection owns one native session, either to a NameNode or to the local
filesystem. Path operations (Stat, List, Delete, Chmod, Copy, ...) are single
native round trips on that session. Open returns a File, a stream that
borrows the session for its I/O. Find, FindAll and Walk are recursive
traversals built only on the single-level List.

	native.Init(driver) // once per process

	conn, err := hdfs.Connect(hdfs.ConnectOptions{Host: "namenode", Port: 8020})
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Disconnect()

	f, err := conn.Open("/data/part-0000", hdfs.ModeRead, hdfs.OpenOptions{})
	...
	chunk, err := f.Read(hdfs.MaxReadLength)

# Lifecycle

Disconnect and File.Close are idempotent. After Disconnect every call on the
Connection, and on Files opened from it, fails with NOT_CONNECTED before
reaching the native client. A File that is closed fails with FILE_CLOSED.
Connections and Files that are garbage collected without being released
are released by the runtime, with a warning in the log.

# Errors

Every failure is a *errors.DFSError whose code follows the hierarchy in
package errors, so errors.Is(err, errors.ErrFileError) holds for
FILE_CLOSED, COULD_NOT_OPEN_FILE and DOES_NOT_EXIST alike. Native failures
carry the native error text and unwrap to the syscall.Errno.

# Permission modes

Chmod takes and FileInfo.Mode reports permissions in decimal-digit form:
755 means 0755. See DecimalToOctal and OctalToDecimal.
*/
package hdfs
