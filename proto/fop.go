// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package proto

// Every response carries the filesystem errno in band, zero on success.

type LookupRequest struct {
	Loc   Loc  `json:"loc"`
	Xdata Dict `json:"xdata,omitempty"`
}

type LookupResponse struct {
	Errno      int32 `json:"errno,omitempty"`
	Buf        *Iatt `json:"buf,omitempty"`
	Postparent *Iatt `json:"postparent,omitempty"`
	Xdata      Dict  `json:"xdata,omitempty"`
}

type CreateRequest struct {
	Loc   Loc    `json:"loc"`
	Flags int32  `json:"flags"`
	Mode  uint32 `json:"mode"`
	Umask uint32 `json:"umask"`
	Xdata Dict   `json:"xdata,omitempty"`
}

type CreateResponse struct {
	Errno      int32  `json:"errno,omitempty"`
	Fd         *Fd    `json:"fd,omitempty"`
	Buf        *Iatt  `json:"buf,omitempty"`
	Preparent  *Iatt  `json:"preparent,omitempty"`
	Postparent *Iatt  `json:"postparent,omitempty"`
	Xdata      Dict   `json:"xdata,omitempty"`
	DataSubvol string `json:"data_subvol,omitempty"`
}

type MkdirRequest struct {
	Loc   Loc    `json:"loc"`
	Mode  uint32 `json:"mode"`
	Umask uint32 `json:"umask"`
	Xdata Dict   `json:"xdata,omitempty"`
}

type MkdirResponse struct {
	Errno      int32 `json:"errno,omitempty"`
	Buf        *Iatt `json:"buf,omitempty"`
	Preparent  *Iatt `json:"preparent,omitempty"`
	Postparent *Iatt `json:"postparent,omitempty"`
	Xdata      Dict  `json:"xdata,omitempty"`
}

// MkinodeRequest creates an inode without any name, Loc must be nameless.
type MkinodeRequest struct {
	Loc   Loc    `json:"loc"`
	Type  IAType `json:"type"`
	Mode  uint32 `json:"mode"`
	Umask uint32 `json:"umask"`
	Xdata Dict   `json:"xdata,omitempty"`
}

type MkinodeResponse struct {
	Errno int32 `json:"errno,omitempty"`
	Buf   *Iatt `json:"buf,omitempty"`
}

// NamelinkRequest binds Loc.Name under Loc's parent to an existing GFID.
type NamelinkRequest struct {
	Loc   Loc    `json:"loc"`
	GFID  GFID   `json:"gfid"`
	Type  IAType `json:"type"`
	Xdata Dict   `json:"xdata,omitempty"`
}

type NamelinkResponse struct {
	Errno      int32 `json:"errno,omitempty"`
	Preparent  *Iatt `json:"preparent,omitempty"`
	Postparent *Iatt `json:"postparent,omitempty"`
}

type StatRequest struct {
	Loc   Loc  `json:"loc"`
	Xdata Dict `json:"xdata,omitempty"`
}

type StatResponse struct {
	Errno int32 `json:"errno,omitempty"`
	Buf   *Iatt `json:"buf,omitempty"`
}

type SetattrRequest struct {
	Loc   Loc    `json:"loc"`
	Stbuf Iatt   `json:"stbuf"`
	Valid uint32 `json:"valid"`
	Xdata Dict   `json:"xdata,omitempty"`
}

type SetattrResponse struct {
	Errno    int32 `json:"errno,omitempty"`
	Prestat  *Iatt `json:"prestat,omitempty"`
	Poststat *Iatt `json:"poststat,omitempty"`
}

type OpenRequest struct {
	Loc   Loc   `json:"loc"`
	Flags int32 `json:"flags"`
	Xdata Dict  `json:"xdata,omitempty"`
}

type OpenResponse struct {
	Errno int32 `json:"errno,omitempty"`
	Fd    *Fd   `json:"fd,omitempty"`
}

type FlushRequest struct {
	Fd    Fd   `json:"fd"`
	Xdata Dict `json:"xdata,omitempty"`
}

type FlushResponse struct {
	Errno int32 `json:"errno,omitempty"`
}

type WriteRequest struct {
	Fd     Fd     `json:"fd"`
	Offset uint64 `json:"offset"`
	Data   []byte `json:"data"`
	Xdata  Dict   `json:"xdata,omitempty"`
}

type WriteResponse struct {
	Errno    int32  `json:"errno,omitempty"`
	Written  uint64 `json:"written"`
	Prestat  *Iatt  `json:"prestat,omitempty"`
	Poststat *Iatt  `json:"poststat,omitempty"`
}

type ReadRequest struct {
	Fd     Fd     `json:"fd"`
	Offset uint64 `json:"offset"`
	Size   uint32 `json:"size"`
	Xdata  Dict   `json:"xdata,omitempty"`
}

type ReadResponse struct {
	Errno int32  `json:"errno,omitempty"`
	Data  []byte `json:"data,omitempty"`
	Stbuf *Iatt  `json:"stbuf,omitempty"`
	EOF   bool   `json:"eof"`
}

type StatfsRequest struct {
	Xdata Dict `json:"xdata,omitempty"`
}

type StatfsResponse struct {
	Errno  int32   `json:"errno,omitempty"`
	Statfs *Statfs `json:"statfs,omitempty"`
}
