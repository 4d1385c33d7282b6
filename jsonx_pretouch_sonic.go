//go:build !nojsonsimd

package stratumcore

import (
	"reflect"

	"github.com/bytedance/sonic"
)

func init() {
	// Templates arrive on every poll and share records are journaled for
	// every block candidate, so compile their codecs up front.
	_ = sonic.Pretouch(reflect.TypeOf(GetBlockTemplateResult{}))
	_ = sonic.Pretouch(reflect.TypeOf(ShareRecord{}))
	_ = sonic.Pretouch(reflect.TypeOf(rpcRequest{}))
	_ = sonic.Pretouch(reflect.TypeOf(rpcResponse{}))
	_ = sonic.Pretouch(reflect.TypeOf(rpcError{}))
}
