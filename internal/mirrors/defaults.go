package mirrors

// Default lists the built-in mirror set seeded into the registry the first
// time the persistent store is created. Names and URLs mirror the public
// distribution mirrors a fresh install would reasonably start from.
var Default = []Mirror{
	{Name: "debian", URLs: []string{"http://deb.debian.org/debian"}, Status: StatusApproved},
	{Name: "debian-security", URLs: []string{"http://security.debian.org/debian-security"}, Status: StatusApproved},
	{Name: "ubuntu", URLs: []string{"http://archive.ubuntu.com/ubuntu"}, Status: StatusApproved},
	{Name: "ubuntu-security", URLs: []string{"http://security.ubuntu.com/ubuntu"}, Status: StatusApproved},
	{Name: "fedora", URLs: []string{"https://dl.fedoraproject.org/pub/fedora/linux"}, Status: StatusApproved},
	{Name: "centos", URLs: []string{"https://mirror.centos.org/centos"}, Status: StatusApproved},
	{Name: "rocky", URLs: []string{"https://download.rockylinux.org/pub/rocky"}, Status: StatusApproved},
	{Name: "alma", URLs: []string{"https://repo.almalinux.org/almalinux"}, Status: StatusApproved},
	{Name: "opensuse", URLs: []string{"https://download.opensuse.org"}, Status: StatusApproved},
	{Name: "kali", URLs: []string{"http://http.kali.org/kali"}, Status: StatusApproved},
	{Name: "archlinux", URLs: []string{"https://geo.mirror.pkgbuild.com"}, Status: StatusApproved},
	{Name: "alpine", URLs: []string{"https://dl-cdn.alpinelinux.org/alpine"}, Status: StatusApproved},
	{Name: "raspbian", URLs: []string{"http://archive.raspbian.org/raspbian"}, Status: StatusApproved},
	{Name: "docker", URLs: []string{"https://download.docker.com/linux"}, Status: StatusApproved},
	{Name: "postgresql", URLs: []string{"https://apt.postgresql.org/pub/repos/apt"}, Status: StatusApproved},
	{Name: "nodesource", URLs: []string{"https://deb.nodesource.com"}, Status: StatusApproved},
	{Name: "jenkins", URLs: []string{"https://pkg.jenkins.io/debian-stable"}, Status: StatusApproved},
	{Name: "proxmox", URLs: []string{"http://download.proxmox.com/debian"}, Status: StatusApproved},
	{Name: "nvidia", URLs: []string{"https://developer.download.nvidia.com/compute/cuda/repos"}, Status: StatusApproved},
	{Name: "hrfee", URLs: []string{"https://repo.hrfee.dev"}, Status: StatusApproved},
}
