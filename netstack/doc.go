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

// Package netstack implements the tcpserv stack interfaces on top of kernel
// sockets, for running a tcpserv.Server on hosted platforms. Supported on
// Linux, FreeBSD, DragonFly and Darwin; elsewhere every handle allocation
// fails with ErrUnsupportedPlatform.
package netstack
