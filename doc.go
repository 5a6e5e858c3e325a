/*
 *
 * Copyright 2023 CubeFS authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# MetaDHT: metadata and data separated over a distributed hash table

## Why split metadata from data?

1, scale the namespace and the file bytes independently, each on its own set of subvolumes

2, keep a file's inode and its bytes addressable by the same gfid, with no lookup table

3, resolve most named lookups in one hop

## Data Model

* GFID, the 16 byte global file id. The root directory is 00..01.

* Inode, gfid --> attributes (iatt), owned by exactly one MDS subvolume

* Name entry, <parent gfid, name> --> child gfid, kept on the MDS owning the parent

* Data, gfid --> file bytes, kept on the DS subvolume owning the gfid

## Architecture

A MetaDHT deployment has three subvolume roles:

* MDS - metadata server, inodes and directory names

* DS - data server, file bytes

* Router - routes every fop to the MDS or DS owning its gfid, per a layout table

Each layout table splits the gfid space into contiguous buckets, one per member.
The strategy is either hash (top 16 bits of the gfid) or range (top 32 bits).

### Colocation

A regular file's gfid is generated inside its parent's bucket, so the name and
the inode live on the same MDS. A named lookup then takes one hop.
Directories get random gfids. When a name points to an inode on another MDS
the parent's MDS answers EREMOTE and the router follows up with a nameless
lookup on the owning MDS.

### Transport

Every subvolume implements the same fop interface, served over gRPC. A router
mixes local and remote children.

### Storage

every mds and ds owns one kvstore, badger by default, rocksdb optionally


## Building Blocks

* gRPC
* Badger
* Rocksdb
* Prometheus

*/

package metadht
