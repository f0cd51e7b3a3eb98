package quickjs

import (
	"errors"
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// jobQueue drives the engine's promise job queue. The Go wrapper never
// calls JS_ExecutePendingJob, so the runtime pointer and TLS are pulled
// out of the VM's unexported fields once, at creation.
//
// Layout relied on (modernc.org/quickjs v0.17):
//
//	type VM struct { ...; runtime *runtime; ... }
//	type runtime struct { cRuntime uintptr; tls *libc.TLS }
type jobQueue struct {
	cRuntime uintptr
	tls      *libc.TLS
}

var errLayout = errors.New("quickjs: unexpected VM layout, cannot reach the job queue")

func newJobQueue(vm *quickjs.VM) (q jobQueue, err error) {
	defer func() {
		if recover() != nil {
			err = errLayout
		}
	}()
	rtField := reflect.ValueOf(vm).Elem().FieldByName("runtime")
	if !rtField.IsValid() || rtField.IsNil() {
		return q, errLayout
	}
	rt := reflect.NewAt(rtField.Type().Elem(), unsafe.Pointer(rtField.Pointer())).Elem()
	c := rt.FieldByName("cRuntime")
	tls := rt.FieldByName("tls")
	if !c.IsValid() || !tls.IsValid() || tls.IsNil() {
		return q, errLayout
	}
	q.cRuntime = uintptr(c.Uint())
	q.tls = (*libc.TLS)(unsafe.Pointer(tls.Pointer()))
	return q, nil
}

// drain runs jobs until the queue is empty and returns how many ran.
// A job that throws counts as run; its rejection is reported through
// the promise it belongs to.
func (q jobQueue) drain() int {
	n := 0
	for lib.XJS_ExecutePendingJob(q.tls, q.cRuntime, 0) != 0 {
		n++
	}
	return n
}
