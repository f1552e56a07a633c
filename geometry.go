package vfs

// ComputeGeometry derives a fully populated Superblock from a requested disk
// size, in bytes. This is a pure function: its result depends only on
// diskSize, matching Superblock's constructor in original_source/Superblock.cpp
// (clusterCount = diskSize / CLUSTER_SIZE, inodeClusterCount = clusterCount /
// 20, inodeCount = inodeClusterCount * CLUSTER_SIZE / INODE_SIZE,
// bitmapClusterCount = ceil((clusterCount - inodeClusterCount - 1) /
// CLUSTER_SIZE), with the bitmap/inode/data regions laid out contiguously
// after the one-cluster superblock).
func ComputeGeometry(diskSize int64) (Superblock, DriverError) {
	if diskSize <= 0 {
		return Superblock{}, ErrInvalidSize.WithMessage("disk size must be positive")
	}

	clusterCount := diskSize / ClusterSize
	inodeClusterCount := clusterCount / 20
	inodeCount := (inodeClusterCount * ClusterSize) / InodeSize

	remaining := clusterCount - inodeClusterCount - 1
	bitmapClusterCount := ceilDiv(remaining, ClusterSize)
	dataClusterCount := clusterCount - 1 - bitmapClusterCount - inodeClusterCount

	if dataClusterCount <= 1 || inodeCount < 1 {
		return Superblock{}, ErrInvalidSize.WithMessage(
			"disk too small to host a data region and an inode table")
	}

	sb := Superblock{
		DiskSize:           int32(diskSize),
		ClusterSize:        ClusterSize,
		ClusterCount:       int32(clusterCount),
		InodeCount:         int32(inodeCount),
		BitmapClusterCount: int32(bitmapClusterCount),
		InodeClusterCount:  int32(inodeClusterCount),
		DataClusterCount:   int32(dataClusterCount),
		BitmapStart:        ClusterSize,
		InodeStart:         ClusterSize + int32(bitmapClusterCount)*ClusterSize,
	}
	sb.DataStart = sb.InodeStart + int32(inodeClusterCount)*ClusterSize
	copy(sb.Signature[:], Signature)
	return sb, nil
}

func ceilDiv(numerator, denominator int64) int64 {
	if numerator <= 0 {
		return 0
	}
	return (numerator + denominator - 1) / denominator
}
