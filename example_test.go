// Copyright (c) 2026 The Tcpserv Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tcpserv_test

import (
	"fmt"

	"github.com/embnet/tcpserv"
	"github.com/embnet/tcpserv/memstack"
)

func Example() {
	stack := memstack.New()
	srv := tcpserv.NewServer(stack, tcpserv.WithBacklog(4))
	if err := srv.BeginOn(7000); err != nil {
		fmt.Println(err)
		return
	}
	defer srv.Close()

	peer, _ := stack.Dial(7000)
	peer.Write([]byte("knock knock"))

	if n := srv.HasClientData(); n > 0 {
		c := srv.Accept()
		buf := make([]byte, n)
		c.Read(buf)
		fmt.Printf("%s\n", buf)
		c.Close()
	}
	// Output: knock knock
}
