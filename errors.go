// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package mmapcache

import (
	"fmt"
	"syscall"
)

const (
	// Errors corresponding to kernel error numbers. These may be treated
	// specially when returned by Get.
	ErrnoOutOfMemory = syscall.ENOMEM
	ErrnoIO          = syscall.EIO
	ErrnoOutOfRange  = syscall.EADDRNOTAVAIL
)

// wrapErrno annotates a bare errno with the operation and file descriptor
// that produced it.
func wrapErrno(op string, fd int, errno syscall.Errno) error {
	return fmt.Errorf("mmapcache: %s(fd=%d): %w", op, fd, errno)
}

// abort is invoked on an unattributable bus fault. It is a package variable
// rather than a direct call to os.Exit so that tests can substitute it.
var abort = func(format string, args ...interface{}) {
	panic(fmt.Sprintf("mmapcache: fatal: "+format, args...))
}
